package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/captivault/captivault/vault"
)

const (
	metaFormatVersionCurrent   = 1
	recordFormatVersionCurrent = 1

	envelopeNonceLen = 12
	envelopeTagLen   = 16
)

// record is the stored form of a capture entry. Both sensitive fields stay
// sealed until an explicit read path opens them.
type record struct {
	RecordID  string
	Phone     vault.Envelope
	Code      vault.Envelope
	Status    uint8
	CreatedAt int64
}

func encodeMeta(m *Meta) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(metaFormatVersionCurrent)

	if len(m.OperatorID) > 255 {
		return nil, errors.New("operatorID too long")
	}
	buf.WriteByte(byte(len(m.OperatorID)))
	buf.WriteString(m.OperatorID)

	if err := binary.Write(&buf, binary.BigEndian, m.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, m.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeMeta(data []byte) (*Meta, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != metaFormatVersionCurrent {
		return nil, errors.New("invalid capture meta version")
	}

	m := &Meta{}

	operatorLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	operatorID := make([]byte, operatorLen)
	if _, err := io.ReadFull(reader, operatorID); err != nil {
		return nil, err
	}
	m.OperatorID = string(operatorID)

	if err := binary.Read(reader, binary.BigEndian, &m.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &m.ExpiresAt); err != nil {
		return nil, err
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes after capture meta")
	}

	return m, nil
}

func encodeRecord(r *record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersionCurrent)
	buf.WriteByte(r.Status)

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}

	if len(r.RecordID) > 255 {
		return nil, errors.New("recordID too long")
	}
	buf.WriteByte(byte(len(r.RecordID)))
	buf.WriteString(r.RecordID)

	if err := writeEnvelope(&buf, r.Phone); err != nil {
		return nil, err
	}
	if err := writeEnvelope(&buf, r.Code); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, errors.New("invalid capture record version")
	}

	r := &record{}

	status, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if status != StatusPending && status != StatusSent {
		return nil, errors.New("invalid capture record status")
	}
	r.Status = status

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, err
	}

	idLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	recordID := make([]byte, idLen)
	if _, err := io.ReadFull(reader, recordID); err != nil {
		return nil, err
	}
	r.RecordID = string(recordID)

	if r.Phone, err = readEnvelope(reader); err != nil {
		return nil, err
	}
	if r.Code, err = readEnvelope(reader); err != nil {
		return nil, err
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes after capture record")
	}

	return r, nil
}

func writeEnvelope(buf *bytes.Buffer, env vault.Envelope) error {
	if len(env.Nonce) != envelopeNonceLen {
		return errors.New("invalid envelope nonce length")
	}
	if len(env.Tag) != envelopeTagLen {
		return errors.New("invalid envelope tag length")
	}
	if len(env.Ciphertext) > 65535 {
		return errors.New("envelope ciphertext too large")
	}

	buf.Write(env.Nonce)
	buf.Write(env.Tag)
	if err := binary.Write(buf, binary.BigEndian, uint16(len(env.Ciphertext))); err != nil {
		return err
	}
	buf.Write(env.Ciphertext)
	return nil
}

func readEnvelope(reader *bytes.Reader) (vault.Envelope, error) {
	var env vault.Envelope

	env.Nonce = make([]byte, envelopeNonceLen)
	if _, err := io.ReadFull(reader, env.Nonce); err != nil {
		return vault.Envelope{}, err
	}
	env.Tag = make([]byte, envelopeTagLen)
	if _, err := io.ReadFull(reader, env.Tag); err != nil {
		return vault.Envelope{}, err
	}

	var ctLen uint16
	if err := binary.Read(reader, binary.BigEndian, &ctLen); err != nil {
		return vault.Envelope{}, err
	}
	env.Ciphertext = make([]byte, ctLen)
	if _, err := io.ReadFull(reader, env.Ciphertext); err != nil {
		return vault.Envelope{}, err
	}

	return env, nil
}
