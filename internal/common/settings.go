package common

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// settingsSchema describes the JSON settings blob (the same shape the hosted
// deployment keeps in its secrets store). Unknown keys are rejected so a typo
// in a field name fails loudly instead of silently falling back to defaults.
const settingsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"gmail_user":            {"type": "string"},
		"gmail_client_id":       {"type": "string"},
		"gmail_client_secret":   {"type": "string"},
		"gmail_refresh_token":   {"type": "string"},
		"roommate_email":        {"type": "string"},
		"my_email":              {"type": "string"},
		"roommate_venmo":        {"type": "string"},
		"sms_gateway":           {"type": "string"},
		"roommate_split_ratio":  {"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1},
		"my_split_ratio":        {"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1},
		"test_mode":             {"type": "boolean"},
		"enable_email_notifications": {"type": "boolean"},
		"enable_text_messaging":      {"type": "boolean"}
	}
}`

type settingsFile struct {
	GmailUser          *string  `json:"gmail_user"`
	GmailClientID      *string  `json:"gmail_client_id"`
	GmailClientSecret  *string  `json:"gmail_client_secret"`
	GmailRefreshToken  *string  `json:"gmail_refresh_token"`
	RoommateEmail      *string  `json:"roommate_email"`
	MyEmail            *string  `json:"my_email"`
	RoommateVenmo      *string  `json:"roommate_venmo"`
	SMSGateway         *string  `json:"sms_gateway"`
	RoommateSplitRatio *float64 `json:"roommate_split_ratio"`
	MySplitRatio       *float64 `json:"my_split_ratio"`
	TestMode           *bool    `json:"test_mode"`
	EnableEmail        *bool    `json:"enable_email_notifications"`
	EnableText         *bool    `json:"enable_text_messaging"`
}

// ApplySettingsFile overlays a JSON settings file onto the config. The file is
// validated against settingsSchema first; a malformed file is a fatal
// configuration error.
func (c *Config) ApplySettingsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("read settings file %s", path), err)
	}
	if err := validateSettings(data); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("settings file %s", path), err)
	}
	var s settingsFile
	if err := json.Unmarshal(data, &s); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("decode settings file %s", path), err)
	}

	setStr(&c.Gmail.User, s.GmailUser)
	setStr(&c.Gmail.ClientID, s.GmailClientID)
	setStr(&c.Gmail.ClientSecret, s.GmailClientSecret)
	setStr(&c.Gmail.RefreshToken, s.GmailRefreshToken)
	setStr(&c.Notify.CounterpartyEmail, s.RoommateEmail)
	setStr(&c.Notify.CounterpartyVenmo, s.RoommateVenmo)
	setStr(&c.Notify.SMSGateway, s.SMSGateway)
	if s.RoommateSplitRatio != nil {
		c.Split.CounterpartyRatio = *s.RoommateSplitRatio
	}
	if s.MySplitRatio != nil {
		c.Split.OwnRatio = *s.MySplitRatio
	}
	if s.TestMode != nil {
		c.Run.TestMode = *s.TestMode
	}
	if s.EnableEmail != nil {
		c.Notify.EnableEmail = *s.EnableEmail
	}
	if s.EnableText != nil {
		c.Notify.EnableText = *s.EnableText
	}
	return nil
}

func validateSettings(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("settings.json", strings.NewReader(settingsSchema)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("settings.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("settings do not match schema: %w", err)
	}
	return nil
}

func setStr(dst *string, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}
