package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	cookieFormatVersionCurrent = 2
	cookieFormatVersionV1      = 1

	maxCookiesPerSet = 512
)

const (
	flagSecure byte = 1 << iota
	flagHTTPOnly
)

// ErrInvalidFormat is returned by Decode for unknown versions or truncated input.
var ErrInvalidFormat = errors.New("invalid cookie set encoding")

// Encode serializes a cookie set. Strings are length-prefixed with uint16 so
// JWT-sized values fit.
//
// Layout (v2): version, uint16 count, then per cookie: name, value, path,
// domain (uint16 length + bytes each), int64 expires, flags byte, samesite byte.
// v1 had no samesite byte.
func Encode(cookies []Cookie) ([]byte, error) {
	if len(cookies) > maxCookiesPerSet {
		return nil, fmt.Errorf("too many cookies: %d", len(cookies))
	}

	var buf bytes.Buffer
	buf.WriteByte(cookieFormatVersionCurrent)
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(cookies)))

	for i := range cookies {
		c := &cookies[i]
		for _, s := range []string{c.Name, c.Value, c.Path, c.Domain} {
			if err := writeString(&buf, s); err != nil {
				return nil, fmt.Errorf("cookie %q: %w", c.Name, err)
			}
		}
		_ = binary.Write(&buf, binary.BigEndian, c.Expires)

		var flags byte
		if c.Secure {
			flags |= flagSecure
		}
		if c.HttpOnly {
			flags |= flagHTTPOnly
		}
		buf.WriteByte(flags)
		buf.WriteByte(c.SameSite)
	}

	return buf.Bytes(), nil
}

// Decode parses data produced by Encode at any supported version.
func Decode(data []byte) ([]Cookie, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrInvalidFormat
	}
	if version != cookieFormatVersionCurrent && version != cookieFormatVersionV1 {
		return nil, ErrInvalidFormat
	}

	var count uint16
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, ErrInvalidFormat
	}
	if int(count) > maxCookiesPerSet {
		return nil, ErrInvalidFormat
	}

	out := make([]Cookie, 0, count)
	for i := 0; i < int(count); i++ {
		var c Cookie
		fields := []*string{&c.Name, &c.Value, &c.Path, &c.Domain}
		for _, f := range fields {
			s, err := readString(reader)
			if err != nil {
				return nil, ErrInvalidFormat
			}
			*f = s
		}
		if err := binary.Read(reader, binary.BigEndian, &c.Expires); err != nil {
			return nil, ErrInvalidFormat
		}
		flags, err := reader.ReadByte()
		if err != nil {
			return nil, ErrInvalidFormat
		}
		c.Secure = flags&flagSecure != 0
		c.HttpOnly = flags&flagHTTPOnly != 0

		if version == cookieFormatVersionCurrent {
			sameSite, err := reader.ReadByte()
			if err != nil {
				return nil, ErrInvalidFormat
			}
			c.SameSite = sameSite
		}
		out = append(out, c)
	}

	if reader.Len() != 0 {
		return nil, ErrInvalidFormat
	}
	return out, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("field too long")
	}
	_ = binary.Write(buf, binary.BigEndian, uint16(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
