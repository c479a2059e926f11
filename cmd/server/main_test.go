package main

import (
	"testing"

	"almofadaria/backend/internal/config"
)

func TestValidatePINStrength(t *testing.T) {
	weak := []string{"123456", "654321", "000000", "999999", "112233", "345678", "876543"}
	for _, pin := range weak {
		if err := validatePINStrength(pin); err == nil {
			t.Fatalf("PIN %q should be rejected", pin)
		}
	}

	strong := []string{"274913", "804152", "19w3x7"}
	for _, pin := range strong {
		if err := validatePINStrength(pin); err != nil {
			t.Fatalf("PIN %q should be accepted: %v", pin, err)
		}
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	base := config.Config{
		AuthSecret: "0123456789abcdef0123456789abcdef",
		ManagerPIN: "274913",
		StoreA:     "loja-centro",
		StoreB:     "loja-shopping",
	}
	if err := validateSecurityConfig(base); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	short := base
	short.AuthSecret = "curto"
	if err := validateSecurityConfig(short); err == nil {
		t.Fatalf("short secret must be rejected")
	}

	weakPIN := base
	weakPIN.ManagerPIN = "123456"
	if err := validateSecurityConfig(weakPIN); err == nil {
		t.Fatalf("weak PIN must be rejected")
	}

	sameStores := base
	sameStores.StoreB = sameStores.StoreA
	if err := validateSecurityConfig(sameStores); err == nil {
		t.Fatalf("identical store ids must be rejected")
	}
}
