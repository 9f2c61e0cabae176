package dfcx_go_bridge

import (
	"github.com/dfcx-bridge/go-bridge/client"
	"github.com/dfcx-bridge/go-bridge/config"
)

// CreateClient returns an SDK client object which can be used to start
// Dialogflow CX sessions. It loads the optional ini file at iniFilepath,
// applies environment overrides and validates the result.
func CreateClient(iniFilepath string) (sdkClient *client.SdkClient, err error) {

	configValues, err := config.GetConfigValues(iniFilepath)
	if err != nil {
		return nil, err
	}

	return client.CreateSdkClient(configValues)
}

// CreateClientWithConfig returns an SDK client object for configuration
// values built by the caller.
func CreateClientWithConfig(configValues *config.ConfigValues) (sdkClient *client.SdkClient, err error) {

	return client.CreateSdkClient(configValues)
}
