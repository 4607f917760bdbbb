package liveserver_test

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/matryer/is"
	"github.com/matthewmueller/liveserver"
)

func TestTypedErrors(t *testing.T) {
	is := is.New(t)
	cause := errors.New("broken pipe")
	err := error(&liveserver.ChannelError{ClientID: "abc", Err: cause})
	is.True(errors.Is(err, cause))
	is.Equal(err.Error(), "liveserver: reload channel abc: broken pipe")

	err = &liveserver.WatchSubtreeError{Dir: "/srv/public/private", Err: fs.ErrPermission}
	is.True(errors.Is(err, fs.ErrPermission))
	is.Equal(err.Error(), "liveserver: unable to watch /srv/public/private: permission denied")

	err = &liveserver.ConfigError{Field: "port", Err: errors.New("70000 is out of range 0-65535")}
	is.Equal(err.Error(), "liveserver: invalid port: 70000 is out of range 0-65535")
	is.Equal(liveserver.StatusCode(err), 500)
}
