package msgs

import "fmt"

// Code is the 8-bit message code, class (3 bits) and detail (5 bits).
type Code byte

// Code classes.
const (
	ClassMethod      byte = 0
	ClassSuccess     byte = 2
	ClassClientError byte = 4
	ClassServerError byte = 5
	ClassSignal      byte = 7
)

// Methods.
const (
	Empty  Code = 0x00
	GET    Code = 0x01
	POST   Code = 0x02
	PUT    Code = 0x03
	DELETE Code = 0x04
	FETCH  Code = 0x05
	PATCH  Code = 0x06
	IPATCH Code = 0x07
)

// Response codes.
const (
	Created                  Code = 0x41
	Deleted                  Code = 0x42
	Valid                    Code = 0x43
	Changed                  Code = 0x44
	Content                  Code = 0x45
	Continue                 Code = 0x5f
	BadRequest               Code = 0x80
	Unauthorized             Code = 0x81
	BadOption                Code = 0x82
	Forbidden                Code = 0x83
	NotFound                 Code = 0x84
	MethodNotAllowed         Code = 0x85
	NotAcceptable            Code = 0x86
	RequestEntityIncomplete  Code = 0x88
	PreconditionFailed       Code = 0x8c
	RequestEntityTooLarge    Code = 0x8d
	UnsupportedContentFormat Code = 0x8f
	InternalServerError      Code = 0xa0
	NotImplemented           Code = 0xa1
	BadGateway               Code = 0xa2
	ServiceUnavailable       Code = 0xa3
	GatewayTimeout           Code = 0xa4
)

// Signaling codes (RFC 8323 §5).
const (
	CSM     Code = 0xe1
	Ping    Code = 0xe2
	Pong    Code = 0xe3
	Release Code = 0xe4
	Abort   Code = 0xe5
)

// Class returns the code class.
func (c Code) Class() byte {
	return byte(c) >> 5
}

// Detail returns the code detail.
func (c Code) Detail() byte {
	return byte(c) & 0x1f
}

// IsSignal indicates a signaling code.
func (c Code) IsSignal() bool {
	return c.Class() == ClassSignal
}

// IsSuccess indicates a 2.xx response.
func (c Code) IsSuccess() bool {
	return c.Class() == ClassSuccess
}

// IsMethod indicates a request method.
func (c Code) IsMethod() bool {
	return c.Class() == ClassMethod && c != Empty
}

var codeNames = map[Code]string{
	Empty:                    "Empty",
	GET:                      "GET",
	POST:                     "POST",
	PUT:                      "PUT",
	DELETE:                   "DELETE",
	FETCH:                    "FETCH",
	PATCH:                    "PATCH",
	IPATCH:                   "iPATCH",
	Created:                  "Created",
	Deleted:                  "Deleted",
	Valid:                    "Valid",
	Changed:                  "Changed",
	Content:                  "Content",
	Continue:                 "Continue",
	BadRequest:               "BadRequest",
	Unauthorized:             "Unauthorized",
	BadOption:                "BadOption",
	Forbidden:                "Forbidden",
	NotFound:                 "NotFound",
	MethodNotAllowed:         "MethodNotAllowed",
	NotAcceptable:            "NotAcceptable",
	RequestEntityIncomplete:  "RequestEntityIncomplete",
	PreconditionFailed:       "PreconditionFailed",
	RequestEntityTooLarge:    "RequestEntityTooLarge",
	UnsupportedContentFormat: "UnsupportedContentFormat",
	InternalServerError:      "InternalServerError",
	NotImplemented:           "NotImplemented",
	BadGateway:               "BadGateway",
	ServiceUnavailable:       "ServiceUnavailable",
	GatewayTimeout:           "GatewayTimeout",
	CSM:                      "CSM",
	Ping:                     "Ping",
	Pong:                     "Pong",
	Release:                  "Release",
	Abort:                    "Abort",
}

// String implements Stringer, e.g. "2.05 Content".
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return fmt.Sprintf("%d.%02d %s", c.Class(), c.Detail(), name)
	}
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

// ParseMethod converts a method name into Code.
func ParseMethod(name string) (Code, error) {
	switch name {
	case "GET", "get":
		return GET, nil
	case "POST", "post":
		return POST, nil
	case "PUT", "put":
		return PUT, nil
	case "DELETE", "delete":
		return DELETE, nil
	case "FETCH", "fetch":
		return FETCH, nil
	case "PATCH", "patch":
		return PATCH, nil
	case "IPATCH", "iPATCH", "ipatch":
		return IPATCH, nil
	}
	return Empty, fmt.Errorf("unknown method %q", name)
}
