package a2s

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kongor-net/agql/internal/core"
)

// EncodeInfoRequest builds an A2S_INFO request. payload is ignored; the
// request carries no parameters.
func EncodeInfoRequest(payload any) ([]byte, error) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(requestHeader))
	buf.WriteByte(cmdInfo)
	buf.WriteString(engineQueryStr)
	return buf.Bytes(), nil
}

// EncodePlayersRequest builds an A2S_PLAYERS request carrying the given
// challenge value (NoChallenge on the first attempt of a conversation).
func EncodePlayersRequest(payload any) ([]byte, error) {
	return encodeChallenged(cmdPlayers, payload)
}

// EncodeRulesRequest builds an A2S_RULES request carrying the given
// challenge value.
func EncodeRulesRequest(payload any) ([]byte, error) {
	return encodeChallenged(cmdRules, payload)
}

func encodeChallenged(cmd byte, payload any) ([]byte, error) {
	challenge, ok := payload.(int32)
	if !ok {
		challenge = NoChallenge
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(requestHeader))
	buf.WriteByte(cmd)
	binary.Write(&buf, binary.LittleEndian, challenge)
	return buf.Bytes(), nil
}

// Decode inspects the leading header and discriminator byte of data and
// dispatches to the matching per-message decoder. It is total: malformed
// input always yields a typed error rather than a panic.
func Decode(data []byte) (any, error) {
	r := bytes.NewReader(data)

	var header uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: missing header: %v", core.ErrMalformedPayload, err)
	}
	if header != requestHeader {
		return nil, fmt.Errorf("%w: unexpected header 0x%08X", core.ErrUnrecognizedMessage, header)
	}

	cmd, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: missing discriminator", core.ErrMalformedPayload)
	}

	switch cmd {
	case respInfo:
		return decodeInfo(r)
	case respPlayers:
		return decodePlayers(r)
	case respRules:
		return decodeRules(r)
	case respChallenge:
		return decodeChallenge(r)
	default:
		return nil, fmt.Errorf("%w: discriminator 0x%02X", core.ErrUnrecognizedMessage, cmd)
	}
}

func decodeChallenge(r *bytes.Reader) (any, error) {
	var challenge int32
	if err := binary.Read(r, binary.LittleEndian, &challenge); err != nil {
		return nil, fmt.Errorf("%w: challenge value: %v", core.ErrMalformedPayload, err)
	}
	return Challenge{Value: challenge}, nil
}

func decodeInfo(r *bytes.Reader) (any, error) {
	var info Info

	var err error
	if err = binary.Read(r, binary.LittleEndian, &info.Protocol); err != nil {
		return nil, wrapMalformed("protocol", err)
	}
	if info.Name, err = readNulString(r); err != nil {
		return nil, wrapMalformed("name", err)
	}
	if info.Map, err = readNulString(r); err != nil {
		return nil, wrapMalformed("map", err)
	}
	if info.Folder, err = readNulString(r); err != nil {
		return nil, wrapMalformed("folder", err)
	}
	if info.Game, err = readNulString(r); err != nil {
		return nil, wrapMalformed("game", err)
	}
	if err = binary.Read(r, binary.LittleEndian, &info.AppID); err != nil {
		return nil, wrapMalformed("app id", err)
	}
	if err = binary.Read(r, binary.LittleEndian, &info.Players); err != nil {
		return nil, wrapMalformed("players", err)
	}
	if err = binary.Read(r, binary.LittleEndian, &info.MaxPlayers); err != nil {
		return nil, wrapMalformed("max players", err)
	}
	if err = binary.Read(r, binary.LittleEndian, &info.Bots); err != nil {
		return nil, wrapMalformed("bots", err)
	}
	if err = binary.Read(r, binary.LittleEndian, &info.ServerType); err != nil {
		return nil, wrapMalformed("server type", err)
	}
	if err = binary.Read(r, binary.LittleEndian, &info.Environment); err != nil {
		return nil, wrapMalformed("environment", err)
	}
	if err = binary.Read(r, binary.LittleEndian, &info.Visibility); err != nil {
		return nil, wrapMalformed("visibility", err)
	}
	if err = binary.Read(r, binary.LittleEndian, &info.VAC); err != nil {
		return nil, wrapMalformed("vac", err)
	}
	if info.Version, err = readNulString(r); err != nil {
		return nil, wrapMalformed("version", err)
	}

	return info, nil
}

func decodePlayers(r *bytes.Reader) (any, error) {
	count, err := r.ReadByte()
	if err != nil {
		return nil, wrapMalformed("player count", err)
	}

	players := make([]Player, 0, count)
	for i := byte(0); i < count; i++ {
		var p Player
		if err := binary.Read(r, binary.LittleEndian, &p.Index); err != nil {
			return nil, wrapMalformed("player index", err)
		}
		if p.Name, err = readNulString(r); err != nil {
			return nil, wrapMalformed("player name", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &p.Score); err != nil {
			return nil, wrapMalformed("player score", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &p.Duration); err != nil {
			return nil, wrapMalformed("player duration", err)
		}
		players = append(players, p)
	}
	return players, nil
}

func decodeRules(r *bytes.Reader) (any, error) {
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, wrapMalformed("rule count", err)
	}

	rules := make([]Rule, 0, count)
	for i := uint16(0); i < count; i++ {
		var rule Rule
		var err error
		if rule.Name, err = readNulString(r); err != nil {
			return nil, wrapMalformed("rule name", err)
		}
		if rule.Value, err = readNulString(r); err != nil {
			return nil, wrapMalformed("rule value", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// readNulString reads a NUL-terminated string, rejecting an unterminated
// run per spec §4.2.
func readNulString(r *bytes.Reader) (string, error) {
	var out []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return "", fmt.Errorf("unterminated string")
			}
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
}

func wrapMalformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrMalformedPayload, field, err)
}
