// Package sender delivers notifications to their recipients.
//
// HTTPSender posts messages to a messaging gateway that fans them out to
// email or WhatsApp. LogSender only writes them to the log and is meant for
// local runs and dry-run deployments.
package sender
