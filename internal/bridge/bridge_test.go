package bridge_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/shellforge/shellcore/internal/bridge"
)

func TestValidateEmptyNameWarns(t *testing.T) {
	warnings := bridge.Validate(bridge.PersonalityData{Name: ""})
	assert.Contains(t, warnings, "personality name is empty")
}

func TestValidateOutOfRangeTraitWarns(t *testing.T) {
	warnings := bridge.Validate(bridge.PersonalityData{
		Name: "test",
		Traits: []bridge.TraitData{
			{Name: "t", Strength: 1.5},
		},
	})
	assert.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "t")
}

func TestValidateInRangeTraitIsSilent(t *testing.T) {
	warnings := bridge.Validate(bridge.PersonalityData{
		Name: "test",
		Traits: []bridge.TraitData{
			{Name: "t", Strength: 0.5},
		},
	})
	assert.Empty(t, warnings)
}

func TestValidateReportsBothEmptyNameAndBadTraits(t *testing.T) {
	warnings := bridge.Validate(bridge.PersonalityData{
		Name: "",
		Traits: []bridge.TraitData{
			{Name: "a", Strength: -0.1},
			{Name: "b", Strength: 2.0},
		},
	})
	assert.Len(t, warnings, 3)
}

func TestCallBeforeInitializeFails(t *testing.T) {
	b := bridge.New([]byte{}, zerolog.Nop())
	assert.False(t, b.IsInitialized())

	_, err := b.Version()
	assert.ErrorIs(t, err, bridge.ErrRuntimeNotInitialized)
}

func TestCleanupClearsLocalFlagOnly(t *testing.T) {
	b := bridge.New([]byte{}, zerolog.Nop())
	b.Cleanup()
	assert.False(t, b.IsInitialized())
}
