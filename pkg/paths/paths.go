package paths

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// MaxPathLen is the longest name written to disk or used as an object key.
const MaxPathLen = 255

// Sanitize keeps names of up to MaxPathLen bytes unchanged. Longer names are
// replaced by "_" + sha1(name) in hex + the tail of name, exactly MaxPathLen
// bytes in total. The tail starts on a rune boundary; bytes skipped to reach
// it are replaced by "_" padding after the hash. The same input always maps
// to the same output.
func Sanitize(name string) string {
	if len(name) <= MaxPathLen {
		return name
	}

	sum := sha1.Sum([]byte(name))
	hash := hex.EncodeToString(sum[:])
	start := len(name) - (MaxPathLen - len(hash) - 1)
	cut := start
	for cut < len(name) && !utf8.RuneStart(name[cut]) {
		cut++
	}

	return "_" + hash + strings.Repeat("_", cut-start) + name[cut:]
}

// OutputName derives the result file name for an input file reference.
func OutputName(filePath string) string {
	return Sanitize(strings.ReplaceAll(filePath, "/", ":") + ".parquet")
}
