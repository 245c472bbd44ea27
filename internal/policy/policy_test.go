package policy

import (
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/quorumtrade/quorum-api/internal/telemetry"
	"github.com/quorumtrade/quorum-api/internal/types"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

type stubMetrics struct {
	m types.RiskMetrics
}

func (s *stubMetrics) Metrics(accountID, symbol string) (types.RiskMetrics, error) {
	return s.m, nil
}

func newTestService(t *testing.T, metrics types.RiskMetricsProvider) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&Config{}, &telemetry.Event{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewService(db, metrics, telemetry.NewStore(db)), db
}

func TestService_ValidateCheckOrder(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *Config
		metrics     types.RiskMetrics
		quantity    int
		notional    float64
		wantAllowed bool
		wantFailed  string
	}{
		{
			name:        "defaults allow a small trade",
			quantity:    10,
			notional:    1500,
			wantAllowed: true,
		},
		{
			name: "kill switch denies first",
			cfg: &Config{
				AccountID:           "ACC_1",
				Mode:                ModePaper,
				TradingEnabled:      false,
				KillSwitchActive:    true,
				MaxPositionPerSym:   1,
				MaxNotionalPerTrade: 1,
			},
			quantity:   10,
			notional:   1500,
			wantFailed: CheckKillSwitch,
		},
		{
			name: "trading disabled denies before limits",
			cfg: &Config{
				AccountID:           "ACC_1",
				Mode:                ModePaper,
				TradingEnabled:      false,
				MaxPositionPerSym:   1,
				MaxNotionalPerTrade: 1,
			},
			quantity:   10,
			notional:   1500,
			wantFailed: CheckTradingEnabled,
		},
		{
			name:       "position limit denies",
			metrics:    types.RiskMetrics{Position: 995},
			quantity:   10,
			notional:   1500,
			wantFailed: CheckPositionLimit,
		},
		{
			name:       "short position counts toward the limit",
			metrics:    types.RiskMetrics{Position: -995},
			quantity:   10,
			notional:   1500,
			wantFailed: CheckPositionLimit,
		},
		{
			name:       "notional limit denies",
			quantity:   10,
			notional:   30000,
			wantFailed: CheckNotionalLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, &stubMetrics{m: tt.metrics})
			if tt.cfg != nil {
				if err := svc.UpdateConfig(tt.cfg); err != nil {
					t.Fatalf("UpdateConfig() error = %v", err)
				}
			}

			result, err := svc.Validate("ACC_1", "AAPL", tt.quantity, tt.notional)
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}

			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (reason %q)", result.Allowed, tt.wantAllowed, result.Reason)
			}
			if tt.wantFailed != "" {
				last := result.Checks[len(result.Checks)-1]
				if last.Name != tt.wantFailed || last.Passed {
					t.Errorf("last check = %+v, want failed %q", last, tt.wantFailed)
				}
				if result.Reason == "" {
					t.Error("denial must carry a reason")
				}
			}
			if tt.wantAllowed && len(result.Checks) != 4 {
				t.Errorf("len(Checks) = %d on full pass, want 4", len(result.Checks))
			}
		})
	}
}

func TestService_GetConfigDefaults(t *testing.T) {
	svc, _ := newTestService(t, &stubMetrics{})

	cfg, err := svc.GetConfig("unknown-account")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if cfg.Mode != ModePaper || !cfg.TradingEnabled {
		t.Errorf("defaults = %+v, want paper mode with trading enabled", cfg)
	}
	if cfg.MaxPositionPerSym != 1000 || cfg.MaxNotionalPerTrade != 25000 {
		t.Errorf("default limits = %v/%v, want 1000/25000", cfg.MaxPositionPerSym, cfg.MaxNotionalPerTrade)
	}
}

func TestService_ActivateKillSwitch(t *testing.T) {
	svc, db := newTestService(t, &stubMetrics{})

	stopped := make(map[string]string)
	svc.RegisterEmergencyStop(func(accountID, reason string) {
		stopped[accountID] = reason
	})

	cfg, err := svc.ActivateKillSwitch("ACC_1", "fat finger", false)
	if err != nil {
		t.Fatalf("ActivateKillSwitch() error = %v", err)
	}
	if !cfg.KillSwitchActive || cfg.TradingEnabled {
		t.Errorf("config = %+v, want kill switch on and trading off", cfg)
	}
	if len(stopped) != 0 {
		t.Error("non-emergency activation must not invoke the stop hook")
	}

	// Validation now denies on the first check
	result, err := svc.Validate("ACC_1", "AAPL", 1, 100)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if result.Allowed || result.Checks[0].Name != CheckKillSwitch {
		t.Errorf("post-activation validate = %+v, want kill switch denial", result)
	}

	// A critical telemetry event was appended
	var count int64
	db.Model(&telemetry.Event{}).
		Where("account_id = ? AND event_type = ? AND severity = ?",
			"ACC_1", "kill_switch_activated", telemetry.SeverityCritical).
		Count(&count)
	if count != 1 {
		t.Errorf("critical kill switch events = %d, want 1", count)
	}
}

func TestService_ActivateKillSwitchEmergency(t *testing.T) {
	svc, _ := newTestService(t, &stubMetrics{})

	stopped := make(map[string]string)
	svc.RegisterEmergencyStop(func(accountID, reason string) {
		stopped[accountID] = reason
	})

	if _, err := svc.ActivateKillSwitch("ACC_2", "runaway strategy", true); err != nil {
		t.Fatalf("ActivateKillSwitch() error = %v", err)
	}

	if stopped["ACC_2"] != "runaway strategy" {
		t.Errorf("stop hook = %v, want invoked for ACC_2", stopped)
	}
	if _, ok := stopped["ACC_1"]; ok {
		t.Error("stop hook invoked for an unrelated account")
	}
}
