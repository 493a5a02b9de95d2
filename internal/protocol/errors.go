package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"
	ErrUnauthorized    = "E_UNAUTHORIZED"

	// Engine.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrUnknownKind = "E_UNKNOWN_KIND"
	ErrRateLimit   = "E_RATE_LIMIT"
	ErrBusy        = "E_BUSY"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrUnauthorized:    {},
	ErrBadRequest:      {},
	ErrUnknownKind:     {},
	ErrRateLimit:       {},
	ErrBusy:            {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
