package msgs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// OptionID is the option number.
type OptionID uint16

// Options of requests and responses.
const (
	IfMatch       OptionID = 1
	URIHost       OptionID = 3
	ETag          OptionID = 4
	IfNoneMatch   OptionID = 5
	Observe       OptionID = 6
	URIPort       OptionID = 7
	LocationPath  OptionID = 8
	URIPath       OptionID = 11
	ContentFormat OptionID = 12
	MaxAge        OptionID = 14
	URIQuery      OptionID = 15
	Accept        OptionID = 17
	LocationQuery OptionID = 20
	Block2        OptionID = 23
	Block1        OptionID = 27
	Size2         OptionID = 28
	ProxyURI      OptionID = 35
	ProxyScheme   OptionID = 39
	Size1         OptionID = 60
	Echo          OptionID = 252
	RequestTag    OptionID = 292
)

// Options private to signaling messages (RFC 8323 §5).
const (
	// CSM
	MaxMessageSize    OptionID = 2
	BlockWiseTransfer OptionID = 4
	// Ping/Pong
	Custody OptionID = 2
	// Release
	AlternativeAddress OptionID = 2
	HoldOff            OptionID = 4
	// Abort
	BadCSMOption OptionID = 2
)

// MediaType is the value of Content-Format and Accept options.
type MediaType uint16

// Registered media types.
const (
	TextPlain    MediaType = 0
	LinkFormat   MediaType = 40
	AppXML       MediaType = 41
	OctetStream  MediaType = 42
	AppEXI       MediaType = 47
	AppJSON      MediaType = 50
	AppCBOR      MediaType = 60
	AppSenMLJSON MediaType = 110
)

var mediaTypeNames = map[string]MediaType{
	"text":   TextPlain,
	"link":   LinkFormat,
	"xml":    AppXML,
	"octet":  OctetStream,
	"exi":    AppEXI,
	"json":   AppJSON,
	"cbor":   AppCBOR,
	"senml":  AppSenMLJSON,
	"binary": OctetStream,
}

// ParseMediaType accepts a short name like "json" or a number.
func ParseMediaType(s string) (MediaType, error) {
	if mt, ok := mediaTypeNames[strings.ToLower(s)]; ok {
		return mt, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown content format %q", s)
	}
	return MediaType(v), nil
}

const (
	extByte  = 13
	extWord  = 14
	extError = 15

	extByteBase = 13
	extWordBase = 269

	// MaxOptionLen is the longest option value the header can express.
	MaxOptionLen = extWordBase + 0xffff

	// PayloadMarker separates options from payload.
	PayloadMarker byte = 0xff
)

var (
	// ErrOptionTruncated indicates an option runs past the end of data.
	ErrOptionTruncated = errors.New("option truncated")
	// ErrOptionInvalid indicates reserved nibble value 15 in an option header.
	ErrOptionInvalid = errors.New("invalid option header")
	// ErrEmptyPayload indicates a payload marker followed by nothing.
	ErrEmptyPayload = errors.New("payload marker without payload")
	// ErrOptionTooLong indicates a value longer than MaxOptionLen.
	ErrOptionTooLong = errors.New("option value too long")
)

// Option is a single option instance.
type Option struct {
	ID    OptionID
	Value []byte
}

// Options is the list of options of a message, in insertion order.
// Encoding sorts them by number, keeping the order of repeated options.
type Options []Option

// Add appends an option.
func (o Options) Add(id OptionID, value []byte) Options {
	return append(o, Option{ID: id, Value: value})
}

// AddString appends a string option.
func (o Options) AddString(id OptionID, s string) Options {
	return o.Add(id, []byte(s))
}

// AddUint appends a uint option using the minimal encoding.
func (o Options) AddUint(id OptionID, v uint32) Options {
	return o.Add(id, EncodeUint(v))
}

// Remove drops all instances of an option.
func (o Options) Remove(id OptionID) Options {
	out := o[:0:0]
	for _, opt := range o {
		if opt.ID != id {
			out = append(out, opt)
		}
	}
	return out
}

// Find gets the first instance of an option.
func (o Options) Find(id OptionID) (Option, bool) {
	for _, opt := range o {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// Has indicates the option is present.
func (o Options) Has(id OptionID) bool {
	_, ok := o.Find(id)
	return ok
}

// Uint decodes the first instance of a uint option.
func (o Options) Uint(id OptionID) (uint32, bool) {
	opt, ok := o.Find(id)
	if !ok {
		return 0, false
	}
	return DecodeUint(opt.Value), true
}

// Bytes gets the value of the first instance of an option.
func (o Options) Bytes(id OptionID) ([]byte, bool) {
	opt, ok := o.Find(id)
	return opt.Value, ok
}

// All gets values of all instances of an option.
func (o Options) All(id OptionID) [][]byte {
	var values [][]byte
	for _, opt := range o {
		if opt.ID == id {
			values = append(values, opt.Value)
		}
	}
	return values
}

// Path joins Uri-Path options.
func (o Options) Path() string {
	segs := o.All(URIPath)
	strs := make([]string, len(segs))
	for n, seg := range segs {
		strs[n] = string(seg)
	}
	return "/" + strings.Join(strs, "/")
}

// SetPath replaces Uri-Path options with segments of path.
func (o Options) SetPath(path string) Options {
	o = o.Remove(URIPath)
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg != "" {
			o = o.AddString(URIPath, seg)
		}
	}
	return o
}

// EncodeUint encodes v in the minimal number of bytes, 0 as empty.
func EncodeUint(v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	n := 0
	for n < 4 && buf[n] == 0 {
		n++
	}
	return buf[n:]
}

// DecodeUint decodes a big-endian uint of up to 4 bytes.
func DecodeUint(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func optionNibble(v int) (byte, []byte) {
	switch {
	case v < extByteBase:
		return byte(v), nil
	case v < extWordBase:
		return extByte, []byte{byte(v - extByteBase)}
	default:
		ext := make([]byte, 2)
		binary.BigEndian.PutUint16(ext, uint16(v-extWordBase))
		return extWord, ext
	}
}

// AppendOptions encodes options (delta encoded, sorted by number) to dst.
func AppendOptions(dst []byte, opts Options) ([]byte, error) {
	for _, opt := range opts {
		if len(opt.Value) > MaxOptionLen {
			return dst, fmt.Errorf("option %d: %w", opt.ID, ErrOptionTooLong)
		}
	}
	sorted := make(Options, len(opts))
	copy(sorted, opts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	var prev OptionID
	for _, opt := range sorted {
		delta, dext := optionNibble(int(opt.ID - prev))
		length, lext := optionNibble(len(opt.Value))
		dst = append(dst, delta<<4|length)
		dst = append(dst, dext...)
		dst = append(dst, lext...)
		dst = append(dst, opt.Value...)
		prev = opt.ID
	}
	return dst, nil
}

func readExt(nibble byte, data []byte) (int, []byte, error) {
	switch nibble {
	case extByte:
		if len(data) < 1 {
			return 0, nil, ErrOptionTruncated
		}
		return int(data[0]) + extByteBase, data[1:], nil
	case extWord:
		if len(data) < 2 {
			return 0, nil, ErrOptionTruncated
		}
		return int(binary.BigEndian.Uint16(data)) + extWordBase, data[2:], nil
	case extError:
		return 0, nil, ErrOptionInvalid
	}
	return int(nibble), data, nil
}

// ParseOptions decodes options and the payload following them.
func ParseOptions(data []byte) (Options, []byte, error) {
	var opts Options
	var id int
	for len(data) > 0 {
		if data[0] == PayloadMarker {
			if len(data) == 1 {
				return nil, nil, ErrEmptyPayload
			}
			return opts, data[1:], nil
		}
		head := data[0]
		delta, rest, err := readExt(head>>4, data[1:])
		if err != nil {
			return nil, nil, err
		}
		length, rest, err := readExt(head&0xf, rest)
		if err != nil {
			return nil, nil, err
		}
		if len(rest) < length {
			return nil, nil, ErrOptionTruncated
		}
		id += delta
		value := make([]byte, length)
		copy(value, rest[:length])
		opts = append(opts, Option{ID: OptionID(id), Value: value})
		data = rest[length:]
	}
	return opts, nil, nil
}
