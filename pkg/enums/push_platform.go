package enums

import "slices"

// PushPlatform is the device family a push token belongs to.
type PushPlatform string

const (
	PushPlatformIOS     PushPlatform = "ios"
	PushPlatformAndroid PushPlatform = "android"
	PushPlatformWeb     PushPlatform = "web"
)

var validPushPlatforms = []PushPlatform{
	PushPlatformIOS,
	PushPlatformAndroid,
	PushPlatformWeb,
}

// IsValid reports whether the value is a known PushPlatform.
func (p PushPlatform) IsValid() bool {
	return slices.Contains(validPushPlatforms, p)
}

// ParsePushPlatform converts raw input into a PushPlatform.
func ParsePushPlatform(value string) (PushPlatform, error) {
	return parse("push platform", value, validPushPlatforms)
}
