package rfbengine

import (
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/ltsm-go/ltsm/internal/channel"
	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

// ClientVariables is the typed shape of the client-variables handshake
// payload (SPEC_FULL §D.3: platform, timezone, compression preference),
// decoded out of the wire's untyped SessionVariables map.
type ClientVariables struct {
	Platform    string `mapstructure:"platform"`
	Timezone    string `mapstructure:"timezone"`
	Compression string `mapstructure:"compression"`
}

var compressionNameToEncoding = map[string]int32{
	"qoi":     rfbproto.EncodingLTSMQOI,
	"lz4":     rfbproto.EncodingLTSMLZ4,
	"tjpg":    rfbproto.EncodingLTSMTJPG,
	"zrle":    rfbproto.EncodingZRLE,
	"trle":    rfbproto.EncodingTRLE,
	"hextile": rfbproto.EncodingHextile,
	"zlib":    rfbproto.EncodingZlib,
}

// wireSystemMessages hooks the multiplexer's control-plane callback into
// the session so a client-variables message updates sess.Vars and can
// bias encoding preference (spec §4.3's SetEncodings preference order,
// SPEC_FULL §D.3).
func (sess *Session) wireSystemMessages() {
	sess.Mux.OnSystemMessage = func(msg channel.SystemMessage) {
		if msg.Cmd != channel.CmdClientVars {
			return
		}
		sess.applyClientVariables(msg.Vars)
	}
}

func (sess *Session) applyClientVariables(vars map[string]string) {
	if sess.Vars == nil {
		sess.Vars = make(SessionVariables)
	}
	for k, v := range vars {
		sess.Vars[k] = v
	}

	var decoded ClientVariables
	if err := mapstructure.Decode(vars, &decoded); err != nil {
		sess.log.Warn().Err(err).Msg("malformed client-variables payload")
		return
	}
	if decoded.Compression == "" {
		return
	}
	if enc, ok := compressionNameToEncoding[strings.ToLower(decoded.Compression)]; ok {
		sess.policy.Preferred = append([]int32{enc}, sess.policy.Preferred...)
		sess.log.Debug().Str("compression", decoded.Compression).Msg("client-variables biased encoding preference")
	}
}
