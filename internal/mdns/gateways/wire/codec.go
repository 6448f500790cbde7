package wire

import "github.com/haukened/rr-mdns/internal/mdns/domain"

// Codec converts between DNS wire format and domain messages.
//
// Decode fails with a domain.KindMalformedPacket error; Encode fails with a
// domain.KindEncoding error. Neither retries or keeps state between calls.
type Codec interface {
	Decode(data []byte) (domain.Message, error)
	Encode(msg domain.Message) ([]byte, error)
}
