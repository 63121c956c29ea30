package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"futuresexec/internal/models"
	"futuresexec/internal/repository"
)

const FeaturePrefix = "feature."

// One switch per scheduled handler operation, plus the venue fill stream.
const (
	FeatureCheckExternalBreaks = "feature.stack.check_external_breaks"
	FeatureSpawnChildren       = "feature.stack.spawn_children"
	FeatureGenerateForceRolls  = "feature.stack.generate_force_rolls"
	FeatureCreateBrokerOrders  = "feature.stack.create_broker_orders"
	FeatureCancelAndModify     = "feature.stack.cancel_and_modify"
	FeatureProcessFills        = "feature.stack.process_fills"
	FeatureHandleCompletions   = "feature.stack.handle_completions"
	FeatureCheckStuckLocks     = "feature.stack.check_stuck_locks"
	FeatureCheckInternalBreaks = "feature.stack.check_internal_breaks"
	FeatureCheckRollStates     = "feature.stack.check_roll_states"
	FeatureRefreshSampling     = "feature.stack.refresh_sampling"
	FeatureSafeStackRemoval    = "feature.stack.safe_stack_removal"
	FeatureVenueFillStream     = "feature.venue_fill_stream"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureCheckExternalBreaks: true,
		FeatureSpawnChildren:       true,
		FeatureGenerateForceRolls:  true,
		FeatureCreateBrokerOrders:  true,
		FeatureCancelAndModify:     true,
		FeatureProcessFills:        true,
		FeatureHandleCompletions:   true,
		FeatureCheckStuckLocks:     true,
		FeatureCheckInternalBreaks: true,
		FeatureCheckRollStates:     true,
		FeatureRefreshSampling:     true,
		FeatureSafeStackRemoval:    true,
		FeatureVenueFillStream:     false,
	}
}

// FeatureForOperation maps a handler operation name to its switch key.
func FeatureForOperation(op string) string {
	return FeaturePrefix + "stack." + strings.TrimSpace(op)
}

type Switch struct {
	Key       string    `json:"key"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SystemSettingsService struct {
	Repo repository.SystemSettingRepository
}

// EnsureDefaultSwitches creates missing switches. Existing values are left
// alone so an operator's OFF survives a restart.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// Switches lists every boolean feature switch, sorted by key.
func (s *SystemSettingsService) Switches(ctx context.Context) ([]Switch, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	prefix := FeaturePrefix
	items, err := s.Repo.ListSystemSettings(ctx, repository.ListSystemSettingsParams{Prefix: &prefix, Limit: 500})
	if err != nil {
		return nil, err
	}
	out := make([]Switch, 0, len(items))
	for _, item := range items {
		var enabled bool
		if err := json.Unmarshal(item.Value, &enabled); err != nil {
			continue
		}
		out = append(out, Switch{Key: item.Key, Enabled: enabled, UpdatedAt: item.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// IsKnownSwitch reports whether key is one of the default switches.
func IsKnownSwitch(key string) bool {
	_, ok := DefaultFeatureSwitches()[strings.TrimSpace(key)]
	return ok
}
