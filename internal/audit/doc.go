// Package audit implements the immutable access log and the security
// pattern detector for Doorman Core.
//
// Every access validation and door control action appends exactly one
// AccessLog row; the table has no update or delete path. The Detector
// runs after each write and raises persisted Alerts for repeated
// failures against one door and for successful access outside normal
// hours, publishing each alert as a high-priority domain event.
package audit
