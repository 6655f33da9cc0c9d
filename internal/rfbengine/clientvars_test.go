package rfbengine

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ltsm-go/ltsm/internal/rfbproto"
)

func newTestSession() *Session {
	return &Session{
		log:  zerolog.Nop(),
		Vars: make(SessionVariables),
	}
}

func TestApplyClientVariablesMergesVars(t *testing.T) {
	sess := newTestSession()
	sess.applyClientVariables(map[string]string{"platform": "linux", "timezone": "UTC"})

	require.Equal(t, "linux", sess.Vars["platform"])
	require.Equal(t, "UTC", sess.Vars["timezone"])
}

func TestApplyClientVariablesBiasesEncodingPreference(t *testing.T) {
	sess := newTestSession()
	sess.policy.Preferred = []int32{rfbproto.EncodingHextile}

	sess.applyClientVariables(map[string]string{"compression": "zrle"})

	require.Equal(t, rfbproto.EncodingZRLE, sess.policy.Preferred[0])
	require.Contains(t, sess.policy.Preferred, rfbproto.EncodingHextile)
}

func TestApplyClientVariablesIgnoresUnknownCompression(t *testing.T) {
	sess := newTestSession()
	sess.policy.Preferred = []int32{rfbproto.EncodingHextile}

	sess.applyClientVariables(map[string]string{"compression": "made-up-codec"})

	require.Equal(t, []int32{rfbproto.EncodingHextile}, sess.policy.Preferred)
}
