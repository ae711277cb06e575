package cli

import (
	"io"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/codalotl/skilleval/internal/output"
)

func TestMain(m *testing.M) {
	newLogger = func(bool) (*zap.Logger, error) { return zap.NewNop(), nil }
	newPrinter = func(w io.Writer) *output.Printer { return output.NewPlainPrinter(w) }
	goleak.VerifyTestMain(m)
}
