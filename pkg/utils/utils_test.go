package utils

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnv(t *testing.T) {
	t.Setenv("POINTS_TEST_STR", "x")
	assert.Equal(t, "x", Env("POINTS_TEST_STR", "d"))
	assert.Equal(t, "d", Env("POINTS_TEST_UNSET", "d"))
}

func TestEnvInt(t *testing.T) {
	t.Setenv("POINTS_TEST_INT", "42")
	t.Setenv("POINTS_TEST_BAD", "forty")
	t.Setenv("POINTS_TEST_NEG", "-3")

	assert.Equal(t, 42, EnvInt("POINTS_TEST_INT", 7))
	assert.Equal(t, 7, EnvInt("POINTS_TEST_BAD", 7))
	assert.Equal(t, 7, EnvInt("POINTS_TEST_NEG", 7))
	assert.Equal(t, int64(42), EnvInt64("POINTS_TEST_INT", 7))
	assert.Equal(t, int64(7), EnvInt64("POINTS_TEST_UNSET", 7))
}

func TestEnvFloat(t *testing.T) {
	t.Setenv("POINTS_TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, EnvFloat("POINTS_TEST_FLOAT", 1))
	assert.Equal(t, 1.0, EnvFloat("POINTS_TEST_UNSET", 1))
}

func TestEnvBool(t *testing.T) {
	t.Setenv("POINTS_TEST_TRUE", "true")
	t.Setenv("POINTS_TEST_ZERO", "0")
	t.Setenv("POINTS_TEST_JUNK", "maybe")

	assert.True(t, EnvBool("POINTS_TEST_TRUE", false))
	assert.False(t, EnvBool("POINTS_TEST_ZERO", true))
	assert.True(t, EnvBool("POINTS_TEST_JUNK", true))
	assert.False(t, EnvBool("POINTS_TEST_UNSET", false))
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("POINTS_TEST_DUR", "90s")
	t.Setenv("POINTS_TEST_DUR_BAD", "soon")

	assert.Equal(t, 90*time.Second, EnvDuration("POINTS_TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, EnvDuration("POINTS_TEST_DUR_BAD", time.Minute))
}

func TestEnvList(t *testing.T) {
	t.Setenv("POINTS_TEST_LIST", " a, b ,,c ")
	t.Setenv("POINTS_TEST_LIST_EMPTY", " , ")

	assert.Equal(t, []string{"a", "b", "c"}, EnvList("POINTS_TEST_LIST", nil))
	assert.Equal(t, []string{"d"}, EnvList("POINTS_TEST_LIST_EMPTY", []string{"d"}))
	assert.Nil(t, EnvList("POINTS_TEST_UNSET", nil))
}

func TestDedup(t *testing.T) {
	in := []string{"http://a/", "http://b", "http://a", "http://b/"}
	assert.Equal(t, []string{"http://a", "http://b"}, Dedup(in))
	assert.Empty(t, Dedup(nil))
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestDrainAndClose(t *testing.T) {
	assert.NoError(t, DrainAndClose(nil))

	body := &trackingBody{Reader: strings.NewReader("leftover")}
	assert.NoError(t, DrainAndClose(body))
	assert.True(t, body.closed)

	rest, err := io.ReadAll(body)
	assert.NoError(t, err)
	assert.Empty(t, rest)
}

type failingBody struct{ io.Reader }

func (failingBody) Close() error { return errors.New("close failed") }

func TestDrainAndClose_ReturnsCloseError(t *testing.T) {
	err := DrainAndClose(failingBody{Reader: strings.NewReader("")})
	assert.EqualError(t, err, "close failed")
}
