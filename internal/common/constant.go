package common

// SessionMetadataKey is the gRPC/HTTP metadata key used to carry the
// session token on inbound requests.
const SessionMetadataKey = "session_id"
