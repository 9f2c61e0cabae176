package connection

import (
	"context"
	"errors"
	"time"

	"github.com/dfcx-bridge/go-bridge/auth"

	cx "cloud.google.com/go/dialogflow/cx/apiv3"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

// GrpcConnectionConfig contains configuration options for the connection to
// the Dialogflow CX Sessions service.
type GrpcConnectionConfig struct {
	ApiEndpoint   string
	Credentials   string // inline JSON or a path to a key file; empty for ambient credentials
	KeepaliveTime time.Duration
	MaxMessageMb  int
}

// DialogflowConnection contains the actual Sessions client along with its
// configuration.
type DialogflowConnection struct {
	SessionsClient   *cx.SessionsClient
	ConnectionConfig GrpcConnectionConfig
	CredentialSource auth.CredentialSource
}

// CreateNewConnection accepts a GrpcConnectionConfig and uses it to create a
// new Sessions client.
func CreateNewConnection(ctx context.Context, connectionConfig GrpcConnectionConfig) (
	newConnection *DialogflowConnection, err error) {

	if connectionConfig.ApiEndpoint == "" {
		return nil, errors.New("empty endpoint")
	}

	opts, source := ClientOptions(connectionConfig)

	newConnection = &DialogflowConnection{
		ConnectionConfig: connectionConfig,
		CredentialSource: source,
	}

	newConnection.SessionsClient, err = cx.NewSessionsClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return newConnection, nil
}

// ClientOptions builds the client options for a connection config: endpoint,
// credentials, keepalive and message size limits.
func ClientOptions(connectionConfig GrpcConnectionConfig) (opts []option.ClientOption, source auth.CredentialSource) {

	opts = append(opts, option.WithEndpoint(connectionConfig.ApiEndpoint))

	credentialOpts, source := auth.ResolveCredentials(connectionConfig.Credentials)
	opts = append(opts, credentialOpts...)

	keepaliveTime := connectionConfig.KeepaliveTime
	if keepaliveTime <= 0 {
		// send a keepalive ping every 5 minutes
		keepaliveTime = 5 * time.Minute
	}
	opts = append(opts, option.WithGRPCDialOption(grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time: keepaliveTime,
	})))

	maxMessageMb := connectionConfig.MaxMessageMb
	if maxMessageMb < 1 {
		// Use 4MB if not specified.
		maxMessageMb = 4
	}
	opts = append(opts, option.WithGRPCDialOption(grpc.WithDefaultCallOptions(
		grpc.MaxCallRecvMsgSize(maxMessageMb*1024*1024),
		grpc.MaxCallSendMsgSize(maxMessageMb*1024*1024),
	)))

	return opts, source
}

// Close releases the underlying client.
func (connection *DialogflowConnection) Close() error {

	if connection.SessionsClient == nil {
		return nil
	}
	return connection.SessionsClient.Close()
}
