package api

// timeLayout formats timestamps for every JSON response, RFC3339 with
// fractional seconds so clients get consistent precision regardless of
// what the driver returns.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"
