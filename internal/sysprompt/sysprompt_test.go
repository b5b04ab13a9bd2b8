package sysprompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForLabelsRecognisesBugFirst(t *testing.T) {
	assert.Equal(t, VariantDebugger, ForLabels([]string{"Bug", "Feature"}))
}

func TestForLabelsFallsBackToNone(t *testing.T) {
	assert.Equal(t, VariantNone, ForLabels([]string{"Unrelated"}))
}

func TestForLabelsHonoursOrder(t *testing.T) {
	assert.Equal(t, VariantBuilder, ForLabels([]string{"Feature", "Bug"}))
}

func TestForVariantFallsBackOnUnknown(t *testing.T) {
	assert.Equal(t, templates[VariantNone], ForVariant(Variant("nonsense")))
}
