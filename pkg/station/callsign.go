package station

import "regexp"

var channelPrefixRegex = regexp.MustCompile(`^(\d+\.\d+) (.+)$`)

// NormalizeCallSign strips a leading channel number, "4.1 CBS" -> "CBS".
func NormalizeCallSign(value string) string {
	if m := channelPrefixRegex.FindStringSubmatch(value); m != nil {
		return m[2]
	}
	return value
}

// ChannelFromCallSign returns the channel number embedded in call signs
// like "4.1 CBS".
func ChannelFromCallSign(value string) (string, bool) {
	if m := channelPrefixRegex.FindStringSubmatch(value); m != nil {
		return m[1], true
	}
	return "", false
}
