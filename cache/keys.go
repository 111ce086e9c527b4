package cache

import "strings"

const keySeparator = ":"

var namespaceEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// composeKey joins namespace and key. The namespace is escaped so the first
// separator always marks its end.
func composeKey(namespace, key string) string {
	return namespacePrefix(namespace) + key
}

func namespacePrefix(namespace string) string {
	return namespaceEscaper.Replace(namespace) + keySeparator
}
