package client

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mbocsi/goreverb/proto"
)

// Authenticator produces HMAC-SHA256 admission tokens for private and
// presence channels.
type Authenticator struct {
	appKey string
	secret []byte
}

func NewAuthenticator(appKey, appSecret string) *Authenticator {
	return &Authenticator{appKey: appKey, secret: []byte(appSecret)}
}

// SignPrivate returns the admission token for a private channel. The signed
// message is "{socket_id}:{channel}".
func (a *Authenticator) SignPrivate(socketID, channel string) (string, error) {
	if socketID == "" {
		return "", newError(KindPrecondition, "cannot sign %q before a socket id is assigned", channel)
	}
	return a.sign(fmt.Sprintf("%s:%s", socketID, channel)), nil
}

// SignPresence returns the admission token and channel_data string for a
// presence channel. The signed message is
// "{socket_id}:{channel}:{channel_data}" and the channel_data bytes sent on
// the wire must be exactly the bytes that were signed, so the member is
// marshaled once here and the string reused by the caller.
func (a *Authenticator) SignPresence(socketID, channel string, member proto.MemberData) (string, string, error) {
	if socketID == "" {
		return "", "", newError(KindPrecondition, "cannot sign %q before a socket id is assigned", channel)
	}
	if member.UserID == "" {
		return "", "", newError(KindConfiguration, "presence channel %q requires member data with a user_id", channel)
	}

	raw, err := json.Marshal(member)
	if err != nil {
		return "", "", wrapError(KindConfiguration, err, "presence member data for %q is not serializable", channel)
	}
	channelData := string(raw)

	auth := a.sign(fmt.Sprintf("%s:%s:%s", socketID, channel, channelData))
	return auth, channelData, nil
}

func (a *Authenticator) sign(message string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(message))
	return fmt.Sprintf("%s:%s", a.appKey, hex.EncodeToString(mac.Sum(nil)))
}
