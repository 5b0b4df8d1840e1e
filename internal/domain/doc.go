// Package domain models railway service-disruption announcements and their
// version history.
//
// # Data Source
//
// Announcements are published by the railway operator as HTML pages written
// in Traditional Chinese. An upstream scraper fetches the listing and each
// detail page and hands over one observation per page as flat JSON, either as
// a line in a JSON-lines file or as a message on the source Kafka topic:
//
//	{"id":"1234","title":"…","publish_date":"2025/05/20",
//	 "detail_url":"https://…","content_html":"<p>…</p>"}
//
// The same page is observed many times while an incident unfolds. Each
// observation whose canonical text differs from the previous one becomes a
// new [VersionRecord]; identical observations are dropped.
//
// # Conventions
//
// Time zone:
//
//	Every timestamp is Asia/Taipei (+08:00) and serializes as RFC 3339,
//	e.g. "2025-05-21T05:30:00+08:00". See [Taipei].
//
// Publish date:
//
//	"YYYY/MM/DD", the day the notice was posted. It anchors relative and
//	year-less dates found in the prose ("5月21日", "明日").
//
// Content hash:
//
//	"md5:<32 hex>" over the canonical text, not the raw markup, so markup or
//	whitespace churn does not create versions.
//
// Absence:
//
//	An extracted field that could not be determined is JSON null, never a
//	guess and never omitted. List fields are empty lists. A version whose
//	markup yielded no text at all carries "extracted_data": null.
//
// # Immutability
//
// Version records are never modified or removed; [History] only exposes
// Append. Classification is the one mutable entity field: it is a derived view
// of the newest content and is recomputed on every append.
package domain
