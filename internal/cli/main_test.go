package cli

import (
	"os"
	"testing"

	"github.com/Paintersrp/kirad/internal/logging"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}
