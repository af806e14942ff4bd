package common

// AccessTokenHeaderName is the gRPC metadata key carrying the operator's
// access token on admin requests.
const AccessTokenHeaderName = "access_token"

// DefaultAlias names the connection a DB handle is registered under when
// no alias is configured. It travels with every lifecycle signal.
const DefaultAlias = "default"
