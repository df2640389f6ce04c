// Package rcon is a client for the Source RCON protocol spoken by Minecraft
// servers.
package rcon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Packet types. Auth responses reuse the command type value.
const (
	TypeResponse     int32 = 0
	TypeCommand      int32 = 2
	TypeAuthResponse int32 = 2
	TypeAuth         int32 = 3
)

// MaxCommandSize is the largest request body the game server accepts.
const MaxCommandSize = 1446

// maxPacketSize guards reads against a corrupt length prefix.
const maxPacketSize = 1 << 20

// headerSize is id + type; trailerSize is the two terminating NULs.
const (
	headerSize  = 8
	trailerSize = 2
)

var ErrPacketSize = errors.New("rcon: invalid packet size")

// Packet is one protocol message.
type Packet struct {
	ID   int32
	Type int32
	Body string
}

// WritePacket encodes p as: int32 length, int32 id, int32 type, body, two
// NUL bytes. All integers are little endian.
func WritePacket(w io.Writer, p Packet) error {
	length := headerSize + len(p.Body) + trailerSize
	buf := make([]byte, 4+length)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(length))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.ID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.Type))
	copy(buf[12:], p.Body)

	_, err := w.Write(buf)
	return err
}

// ReadPacket decodes one packet from r.
func ReadPacket(r io.Reader) (Packet, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Packet{}, err
	}
	length := int32(binary.LittleEndian.Uint32(prefix[:]))
	if length < headerSize+trailerSize || length > maxPacketSize {
		return Packet{}, fmt.Errorf("%w: %d", ErrPacketSize, length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Packet{}, err
	}

	return Packet{
		ID:   int32(binary.LittleEndian.Uint32(buf[0:4])),
		Type: int32(binary.LittleEndian.Uint32(buf[4:8])),
		Body: string(buf[headerSize : len(buf)-trailerSize]),
	}, nil
}
