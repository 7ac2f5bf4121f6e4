package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/splax/domainmap/internal/repository"
)

var (
	// ErrUnknownSetting is returned for keys that were never registered.
	ErrUnknownSetting = errors.New("settings: unknown setting")
	// ErrInvalidValue is returned when a value does not fit the field type.
	ErrInvalidValue = errors.New("settings: invalid value")
)

// NetworkIPSource reports the public addresses of the network.
type NetworkIPSource interface {
	NetworkIPs(ctx context.Context) []string
}

// FieldValue pairs a field with its effective value.
type FieldValue struct {
	Field
	Value any `json:"value"`
}

// Service reads and writes registered settings.
type Service struct {
	repo          repository.SettingRepository
	registry      *Registry
	networkDomain string
	network       NetworkIPSource
	logger        *slog.Logger
}

// New constructs a settings service.
func New(repo repository.SettingRepository, registry *Registry, networkDomain string, network NetworkIPSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		repo:          repo,
		registry:      registry,
		networkDomain: networkDomain,
		network:       network,
		logger:        logger.With("component", "settings"),
	}
}

// Registry exposes the field registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Get returns the stored value of key or its default.
func (s *Service) Get(ctx context.Context, key string) (any, error) {
	field, ok := s.registry.Field(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	raw, err := s.repo.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return field.DefaultValue(), nil
		}
		return nil, fmt.Errorf("load setting %s: %w", key, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.logger.Warn("stored setting is not valid JSON, using default", "key", key, "error", err)
		return field.DefaultValue(), nil
	}
	value, err := coerce(field, decoded)
	if err != nil {
		s.logger.Warn("stored setting does not match field type, using default", "key", key, "error", err)
		return field.DefaultValue(), nil
	}
	return value, nil
}

// Set validates and stores value under key, returning the normalized value.
func (s *Service) Set(ctx context.Context, key string, value any) (any, error) {
	field, ok := s.registry.Field(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	normalized, err := coerce(field, value)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode setting %s: %w", key, err)
	}
	if err := s.repo.UpsertSetting(ctx, key, raw); err != nil {
		return nil, fmt.Errorf("store setting %s: %w", key, err)
	}
	s.logger.Info("setting updated", "key", key)
	return normalized, nil
}

// Fields returns every registered field with its effective value.
func (s *Service) Fields(ctx context.Context) ([]FieldValue, error) {
	fields := s.registry.Fields()
	out := make([]FieldValue, 0, len(fields))
	for _, f := range fields {
		value, err := s.Get(ctx, f.Key)
		if err != nil {
			return nil, err
		}
		if f.Default == nil && f.DefaultFunc != nil {
			f.Default = f.DefaultFunc()
		}
		out = append(out, FieldValue{Field: f, Value: value})
	}
	return out, nil
}

// Enabled reports whether a toggle is on and every field it requires holds the required value.
// Lookup failures are logged and treated as the field default.
func (s *Service) Enabled(ctx context.Context, key string) bool {
	return s.enabled(ctx, key, map[string]bool{})
}

func (s *Service) enabled(ctx context.Context, key string, visiting map[string]bool) bool {
	field, ok := s.registry.Field(key)
	if !ok || visiting[key] {
		return false
	}
	visiting[key] = true
	for dep, want := range field.Require {
		if !s.requirementMet(ctx, dep, want, visiting) {
			return false
		}
	}
	value, err := s.Get(ctx, key)
	if err != nil {
		s.logger.Warn("setting lookup failed", "key", key, "error", err)
		value = field.DefaultValue()
	}
	on, _ := value.(bool)
	return on
}

func (s *Service) requirementMet(ctx context.Context, dep string, want any, visiting map[string]bool) bool {
	field, ok := s.registry.Field(dep)
	if !ok {
		return false
	}
	if field.Type == TypeToggle {
		wantOn, err := toBool(want)
		if err != nil {
			return false
		}
		return s.enabled(ctx, dep, visiting) == wantOn
	}
	value, err := s.Get(ctx, dep)
	if err != nil {
		return false
	}
	return fmt.Sprint(value) == fmt.Sprint(want)
}

// Int returns a number setting.
func (s *Service) Int(ctx context.Context, key string) (int, error) {
	value, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	n, ok := value.(int)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a number", ErrInvalidValue, key)
	}
	return n, nil
}

// Instructions returns the mapping instructions with network placeholders substituted.
func (s *Service) Instructions(ctx context.Context) (string, error) {
	value, err := s.Get(ctx, KeyMappingInstructions)
	if err != nil {
		return "", err
	}
	text, _ := value.(string)
	if strings.TrimSpace(text) == "" {
		text = DefaultInstructions()
	}
	var ips []string
	if s.network != nil {
		ips = s.network.NetworkIPs(ctx)
	}
	text = strings.ReplaceAll(text, PlaceholderNetworkDomain, s.networkDomain)
	text = strings.ReplaceAll(text, PlaceholderNetworkIP, strings.Join(ips, ", "))
	return text, nil
}

func coerce(field Field, value any) (any, error) {
	switch field.Type {
	case TypeToggle:
		b, err := toBool(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects a toggle", ErrInvalidValue, field.Key)
		}
		return b, nil
	case TypeNumber:
		n, err := toInt(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects a number", ErrInvalidValue, field.Key)
		}
		if field.Min != nil && n < *field.Min {
			return nil, fmt.Errorf("%w: %s must be at least %d", ErrInvalidValue, field.Key, *field.Min)
		}
		if field.Max != nil && n > *field.Max {
			return nil, fmt.Errorf("%w: %s must be at most %d", ErrInvalidValue, field.Key, *field.Max)
		}
		return n, nil
	case TypeSelect:
		str, ok := value.(string)
		if !ok || !field.hasOption(str) {
			return nil, fmt.Errorf("%w: %s must be one of %s", ErrInvalidValue, field.Key, optionList(field))
		}
		return str, nil
	default:
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects text", ErrInvalidValue, field.Key)
		}
		return str, nil
	}
}

func optionList(field Field) string {
	values := make([]string, 0, len(field.Options))
	for _, o := range field.Options {
		values = append(values, o.Value)
	}
	return strings.Join(values, ", ")
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	}
	return false, ErrInvalidValue
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, ErrInvalidValue
		}
		return int(v), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	}
	return 0, ErrInvalidValue
}
