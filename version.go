package speechmatics

// Version is the release version of the client library. It is reported to
// the service through the sm-sdk query parameter on every request.
const Version = "1.0.0"

// sdkTag builds the value of the sm-sdk query parameter. The CLI passes
// fromCLI=true so that usage through the command line tool can be
// distinguished from direct library usage.
func sdkTag(fromCLI bool) string {
	if fromCLI {
		return "go-cli-" + Version
	}
	return "go-" + Version
}

// SDKTag returns the sm-sdk identifier for this client.
func SDKTag(fromCLI bool) string {
	return sdkTag(fromCLI)
}
