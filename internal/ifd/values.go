package ifd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Uints decodes unsigned integer values (BYTE, SHORT, LONG, IFD).
func (e *Entry) Uints(order binary.ByteOrder) []uint64 {
	var out []uint64
	switch e.Type {
	case TypeByte, TypeUndefined:
		for _, b := range e.Data {
			out = append(out, uint64(b))
		}
	case TypeShort:
		for i := 0; i+2 <= len(e.Data); i += 2 {
			out = append(out, uint64(order.Uint16(e.Data[i:])))
		}
	case TypeLong, TypeIFD:
		for i := 0; i+4 <= len(e.Data); i += 4 {
			out = append(out, uint64(order.Uint32(e.Data[i:])))
		}
	}
	return out
}

// Strings renders the entry's values as text.
func (e *Entry) Strings(order binary.ByteOrder) []string {
	switch e.Type {
	case TypeASCII:
		s := strings.TrimRight(string(e.Data), "\x00")
		return []string{s}
	case TypeByte, TypeUndefined:
		return []string{strings.TrimRight(string(e.Data), "\x00")}
	case TypeShort, TypeLong, TypeIFD:
		vals := e.Uints(order)
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = strconv.FormatUint(v, 10)
		}
		return out
	case TypeSByte:
		out := make([]string, len(e.Data))
		for i, b := range e.Data {
			out[i] = strconv.Itoa(int(int8(b)))
		}
		return out
	case TypeSShort:
		var out []string
		for i := 0; i+2 <= len(e.Data); i += 2 {
			out = append(out, strconv.Itoa(int(int16(order.Uint16(e.Data[i:])))))
		}
		return out
	case TypeSLong:
		var out []string
		for i := 0; i+4 <= len(e.Data); i += 4 {
			out = append(out, strconv.Itoa(int(int32(order.Uint32(e.Data[i:])))))
		}
		return out
	case TypeRational, TypeSRational:
		var out []string
		for i := 0; i+8 <= len(e.Data); i += 8 {
			num, den := order.Uint32(e.Data[i:]), order.Uint32(e.Data[i+4:])
			if e.Type == TypeSRational {
				out = append(out, fmt.Sprintf("%d/%d", int32(num), int32(den)))
			} else {
				out = append(out, fmt.Sprintf("%d/%d", num, den))
			}
		}
		return out
	case TypeFloat:
		var out []string
		for i := 0; i+4 <= len(e.Data); i += 4 {
			f := math.Float32frombits(order.Uint32(e.Data[i:]))
			out = append(out, strconv.FormatFloat(float64(f), 'g', -1, 32))
		}
		return out
	case TypeDouble:
		var out []string
		for i := 0; i+8 <= len(e.Data); i += 8 {
			f := math.Float64frombits(order.Uint64(e.Data[i:]))
			out = append(out, strconv.FormatFloat(f, 'g', -1, 64))
		}
		return out
	}
	return nil
}

// SetStrings encodes values into the entry, keeping its type.
func (e *Entry) SetStrings(order binary.ByteOrder, values []string) error {
	var buf bytes.Buffer
	switch e.Type {
	case TypeASCII:
		buf.WriteString(strings.Join(values, " "))
		buf.WriteByte(0)
		e.Data, e.Count = buf.Bytes(), uint32(buf.Len())
		return nil
	case TypeByte, TypeUndefined:
		buf.WriteString(strings.Join(values, ""))
		e.Data, e.Count = buf.Bytes(), uint32(buf.Len())
		return nil
	}

	size := typeSizes[e.Type]
	tmp := make([]byte, size)
	for _, v := range values {
		v = strings.TrimSpace(v)
		switch e.Type {
		case TypeShort, TypeSShort:
			n, err := parseInt(v, e.Type == TypeSShort, 16)
			if err != nil {
				return err
			}
			order.PutUint16(tmp, uint16(n))
		case TypeLong, TypeSLong, TypeIFD:
			n, err := parseInt(v, e.Type == TypeSLong, 32)
			if err != nil {
				return err
			}
			order.PutUint32(tmp, uint32(n))
		case TypeSByte:
			n, err := parseInt(v, true, 8)
			if err != nil {
				return err
			}
			tmp[0] = byte(n)
		case TypeRational, TypeSRational:
			num, den, err := parseRational(v, e.Type == TypeSRational)
			if err != nil {
				return err
			}
			order.PutUint32(tmp, uint32(num))
			order.PutUint32(tmp[4:], uint32(den))
		case TypeFloat:
			f, err := strconv.ParseFloat(v, 32)
			if err != nil {
				return fmt.Errorf("%q is not a number", v)
			}
			order.PutUint32(tmp, math.Float32bits(float32(f)))
		case TypeDouble:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%q is not a number", v)
			}
			order.PutUint64(tmp, math.Float64bits(f))
		default:
			return fmt.Errorf("cannot write values of type %d", e.Type)
		}
		buf.Write(tmp)
	}
	e.Data, e.Count = buf.Bytes(), uint32(len(values))
	return nil
}

// parseInt parses v as an integer that must fit the field's width.
func parseInt(v string, signed bool, bits int) (int64, error) {
	if signed {
		n, err := strconv.ParseInt(v, 10, bits)
		if err != nil {
			return 0, fmt.Errorf("%q is not a %d-bit integer", v, bits)
		}
		return n, nil
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%q is not an unsigned %d-bit integer", v, bits)
	}
	return int64(n), nil
}

func parseRational(v string, signed bool) (int64, int64, error) {
	num, den, found := strings.Cut(v, "/")
	if !found {
		den = "1"
	}
	n, err := parseInt(strings.TrimSpace(num), signed, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not a rational", v)
	}
	d, err := parseInt(strings.TrimSpace(den), signed, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not a rational", v)
	}
	return n, d, nil
}
