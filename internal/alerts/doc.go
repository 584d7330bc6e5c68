// Package alerts implements the rule evaluation engine and webhook delivery
// for yield alerting. Rules are evaluated against every scenario result;
// webhooks are delivered to Teams, Slack or generic HTTP targets.
package alerts
