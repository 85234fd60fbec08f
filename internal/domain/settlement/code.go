package settlement

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jaevor/go-nanoid"
)

const (
	codePrefix    = "DP"
	codeSuffixLen = 6
	codeAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// CodeGenerator produces advisory-unique coupon codes of the form
// DP<millis base36><6 random chars>, e.g. "DPM9XK2T01F3ZQ". Uniqueness is
// not guaranteed at generation time; the ledger's unique constraint catches
// the rare collision and the settlement engine regenerates and retries.
type CodeGenerator struct {
	suffix func() string
	now    func() time.Time
}

// NewCodeGenerator creates a generator with a cryptographically random
// suffix source.
func NewCodeGenerator() (*CodeGenerator, error) {
	suffix, err := nanoid.CustomASCII(codeAlphabet, codeSuffixLen)
	if err != nil {
		return nil, errors.Wrap(err, "init code generator")
	}
	return &CodeGenerator{suffix: suffix, now: time.Now}, nil
}

// Generate returns a fresh coupon code.
func (g *CodeGenerator) Generate() string {
	ts := strings.ToUpper(strconv.FormatInt(g.now().UnixMilli(), 36))
	return codePrefix + ts + g.suffix()
}
