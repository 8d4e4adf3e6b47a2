package app

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hindsightlabs/hindsight/pkg/util"
)

func TestApp_RunStop(t *testing.T) {
	config := NewDefaultConfig()
	config.Server.HTTPListenPort = util.MustGetFreePort()

	app, err := New(*config)
	require.NoError(t, err)

	// start the app
	go func() {
		require.NoError(t, app.Run())
	}()

	// check health endpoint is reachable
	healthCheckURL := fmt.Sprintf("http://localhost:%d/ready", config.Server.HTTPListenPort)
	require.Eventually(t, func() bool {
		t.Log("Checking the app is up...")
		// #nosec G107
		resp, httpErr := http.Get(healthCheckURL)
		if httpErr != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 100*time.Millisecond)

	// the ops surface answers while we are here
	versionURL := fmt.Sprintf("http://localhost:%d/status/version", config.Server.HTTPListenPort)
	resp, err := http.Get(versionURL) // #nosec G107
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// stop the app
	app.Stop()

	// check health endpoint is not reachable anymore
	require.Eventually(t, func() bool {
		t.Log("Checking the app is down...")
		// #nosec G107
		_, httpErr := http.Get(healthCheckURL)
		return httpErr != nil
	}, 30*time.Second, 100*time.Millisecond)
}
