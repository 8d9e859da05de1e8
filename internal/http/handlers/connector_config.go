package handlers

import (
	"fmt"

	"github.com/hubboard/hubboard/internal/connectors/configstore"
)

// mergeConfigPayload folds an update into the stored config for one kind.
// Blank secret fields in the update keep the stored secret, so clients can
// echo masked values back unchanged.
func mergeConfigPayload(kind string, existing, update []byte) ([]byte, error) {
	switch kind {
	case configstore.KindOverseerr:
		current, err := configstore.DecodeOverseerrConfig(existing)
		if err != nil {
			return nil, err
		}
		next, err := configstore.DecodeOverseerrConfig(update)
		if err != nil {
			return nil, err
		}
		return configstore.EncodeConfig(configstore.MergeOverseerrConfig(current, next).Normalized())
	case configstore.KindUniFi:
		current, err := configstore.DecodeUniFiConfig(existing)
		if err != nil {
			return nil, err
		}
		next, err := configstore.DecodeUniFiConfig(update)
		if err != nil {
			return nil, err
		}
		return configstore.EncodeConfig(configstore.MergeUniFiConfig(current, next).Normalized())
	case configstore.KindHomeAssistant:
		current, err := configstore.DecodeHomeAssistantConfig(existing)
		if err != nil {
			return nil, err
		}
		next, err := configstore.DecodeHomeAssistantConfig(update)
		if err != nil {
			return nil, err
		}
		return configstore.EncodeConfig(configstore.MergeHomeAssistantConfig(current, next).Normalized())
	case configstore.KindActualBudget:
		current, err := configstore.DecodeActualBudgetConfig(existing)
		if err != nil {
			return nil, err
		}
		next, err := configstore.DecodeActualBudgetConfig(update)
		if err != nil {
			return nil, err
		}
		return configstore.EncodeConfig(configstore.MergeActualBudgetConfig(current, next).Normalized())
	case configstore.KindPlex:
		current, err := configstore.DecodePlexConfig(existing)
		if err != nil {
			return nil, err
		}
		next, err := configstore.DecodePlexConfig(update)
		if err != nil {
			return nil, err
		}
		return configstore.EncodeConfig(configstore.MergePlexConfig(current, next).Normalized())
	}
	return nil, fmt.Errorf("unknown connector kind %q", kind)
}

// maskedConfig returns the stored config with secrets replaced by their
// masked form. Safe to hand to any client.
func maskedConfig(kind string, raw []byte) (any, error) {
	switch kind {
	case configstore.KindOverseerr:
		cfg, err := configstore.DecodeOverseerrConfig(raw)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Normalized()
		cfg.APIKey = configstore.MaskSecret(cfg.APIKey)
		return cfg, nil
	case configstore.KindUniFi:
		cfg, err := configstore.DecodeUniFiConfig(raw)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Normalized()
		cfg.Password = configstore.MaskSecret(cfg.Password)
		return cfg, nil
	case configstore.KindHomeAssistant:
		cfg, err := configstore.DecodeHomeAssistantConfig(raw)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Normalized()
		cfg.Token = configstore.MaskSecret(cfg.Token)
		return cfg, nil
	case configstore.KindActualBudget:
		cfg, err := configstore.DecodeActualBudgetConfig(raw)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Normalized()
		cfg.Password = configstore.MaskSecret(cfg.Password)
		return cfg, nil
	case configstore.KindPlex:
		cfg, err := configstore.DecodePlexConfig(raw)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Normalized()
		cfg.Token = configstore.MaskSecret(cfg.Token)
		return cfg, nil
	}
	return nil, fmt.Errorf("unknown connector kind %q", kind)
}
