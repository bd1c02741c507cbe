package encoding

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const ContentTypeMsgpack = "application/msgpack"
const ContentTypeJSON = "application/json"

// NegotiateContentType checks the Accept header and returns the preferred content type
func NegotiateContentType(r *http.Request) string {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return ContentTypeJSON
	}

	for _, part := range strings.Split(accept, ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		switch strings.TrimSpace(mediaType) {
		case ContentTypeMsgpack, "application/x-msgpack":
			return ContentTypeMsgpack
		}
	}

	return ContentTypeJSON
}

// WriteMsgpack writes a MessagePack response with the given status code.
// Field names follow the json tags so both encodings share one schema.
func WriteMsgpack(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", ContentTypeMsgpack)
	w.WriteHeader(status)

	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json")
	encoder.SetOmitEmpty(true)
	return encoder.Encode(data)
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// Write encodes data in whichever format the request accepts.
func Write(w http.ResponseWriter, r *http.Request, status int, data any) error {
	if NegotiateContentType(r) == ContentTypeMsgpack {
		return WriteMsgpack(w, status, data)
	}
	return WriteJSON(w, status, data)
}

// Unmarshal decodes a MessagePack payload written by WriteMsgpack.
func Unmarshal(body []byte, target any) error {
	decoder := msgpack.NewDecoder(bytes.NewReader(body))
	decoder.SetCustomStructTag("json")
	return decoder.Decode(target)
}
