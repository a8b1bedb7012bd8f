package jsoncodec

import (
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

// ErrBodyTooLarge is returned by DecodeLimited when the input exceeds the limit.
var ErrBodyTooLarge = errors.New("jsoncodec: body too large")

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

// DecodeLimited reads at most limit bytes from r and decodes them into v.
// Registration bodies and admin requests are small; anything larger is
// rejected before it is parsed.
func DecodeLimited(r io.Reader, limit int64, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return err
	}
	if int64(len(data)) > limit {
		return fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, limit)
	}
	return defaultConfig.Unmarshal(data, v)
}
