package login

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sidkik/revsync/pkg/errors"
	"github.com/sidkik/revsync/pkg/transport/mocks"
)

func TestLogin(t *testing.T) {
	tests := []struct {
		name          string
		serverVersion string
		pingErr       error
		projects      []string
		listErr       error
		expOutput     string
		expFriendly   bool
		expErr        bool
	}{
		{
			name:          "Success",
			serverVersion: "1.2.0",
			projects:      []string{"demo", "firmware"},
			expOutput:     "Logged in as alice. 2 project(s) available.\n",
		},
		{
			name:      "NoAdvertisedVersion",
			expOutput: "Logged in as alice. 0 project(s) available.\n",
		},
		{
			name:          "OldServer",
			serverVersion: "0.9.0",
			expFriendly:   true,
			expErr:        true,
		},
		{
			name:    "Unreachable",
			pingErr: errors.TransportError{Op: "ping", Err: errors.New("connection refused")},
			expErr:  true,
		},
		{
			name:          "BadCredentials",
			serverVersion: "1.2.0",
			listErr:       errors.AuthError{Username: "alice"},
			expErr:        true,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			out := bytes.NewBuffer(nil)
			stdout = out

			client := &mocks.Client{}
			client.On("Ping", mock.Anything).Return(test.serverVersion, test.pingErr)
			client.On("ListProjects", mock.Anything).Return(test.projects, test.listErr)

			err := Main(context.Background(), client, "alice")
			if test.expErr {
				assert.Error(t, err)
				_, isFriendly := errors.RootCause(err).(errors.FriendlyError)
				assert.Equal(t, test.expFriendly, isFriendly)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, test.expOutput, out.String())
		})
	}
}
