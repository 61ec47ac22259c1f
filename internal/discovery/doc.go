// Package discovery advertises the controller over mDNS so embedded
// devices can find the device endpoint without configuration, and lets
// clients such as the console browse for it.
//
// The service type is _idiotic._tcp in the local domain. TXT records
// carry the WebSocket path, the site id and the version:
//
//	path=/embedded site=home version=0.3.0
package discovery
