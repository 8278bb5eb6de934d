package tui

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vvka-141/pgdbapi/internal/schema"
)

func TestDetectMode_EnvironmentOverrides(t *testing.T) {
	for _, env := range []string{"PGDBAPI_PLAIN", "CI", "NO_COLOR"} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, "1")
			assert.Equal(t, ModePlain, DetectMode(os.Stdout))
		})
	}
}

func TestDetectMode_NonTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	assert.NoError(t, err)
	defer f.Close()

	assert.Equal(t, ModePlain, DetectMode(f))
	assert.Equal(t, ModePlain, DetectMode(nil))
	assert.False(t, IsTerminal(f))
}

func TestRenderer_PlainSchema(t *testing.T) {
	snap := schema.NewSnapshot([]schema.Table{{
		Schema: "public",
		Name:   "instances",
		Columns: []schema.Column{
			{Name: "id", DataType: "integer", Nullable: false, Ordinal: 1},
			{Name: "host", DataType: "character varying", Nullable: true, Ordinal: 2},
		},
	}})

	out := NewRenderer(false).Schema(snap)

	assert.NotContains(t, out, "\x1b[", "plain output has no escape sequences")
	assert.Contains(t, out, "public.instances")
	assert.Contains(t, out, "• id integer not null")
	assert.Contains(t, out, "• host character varying\n")
	assert.Less(t, strings.Index(out, " id "), strings.Index(out, " host "))
}

func TestRenderer_PlainMessages(t *testing.T) {
	r := NewRenderer(false)
	assert.Equal(t, "✓ done", r.Success("done"))
	assert.Equal(t, "✗ failed", r.Failure("failed"))
}
