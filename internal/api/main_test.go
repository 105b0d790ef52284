package api

import (
	"os"
	"testing"

	"github.com/adsabs/adscore/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}
