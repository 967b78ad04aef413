// Package http exposes the shared calendar as a JSON API.
//
// Public endpoints:
//   - POST /register: {"email","password","displayName"}. Creates the account
//     and signs it in. Response {"token","expiresAt","user"}; the token is
//     also set as the `session_token` cookie.
//   - POST /login: {"email","password"}. Same response as /register.
//   - GET /healthz: liveness probe.
//
// Every other endpoint requires a session token in the `Authorization: Bearer`
// header or the `session_token` cookie:
//   - POST /logout, GET /profile, PUT /profile, PUT /profile/password.
//   - GET /calendars: accessible calendars, owned first, plus the selected id.
//     A user without calendars gets a default one. POST /calendars,
//     PUT /calendars/{id}, DELETE /calendars/{id}.
//   - POST /calendars/{id}/share {"email"} or {"emails"},
//     DELETE /calendars/{id}/share/{email}.
//   - GET /calendars/{id}/export.ics and POST /calendars/{id}/import (an
//     iCalendar body).
//   - GET /events?view=day|week|month&date=YYYY-MM-DD&calendars=a,b: the grid
//     for the view with segment labels and hour layout. POST /events,
//     GET /events/{id}, PUT /events/{id}, DELETE /events/{id}.
//   - GET /events/stream?calendars=a,b: Server-Sent Events, one `snapshot`
//     event per change of the watched calendars.
//   - GET /search?q=...
//   - GET /notifications, POST /notifications/{id}/read,
//     POST /notifications/read-all.
//
// Errors are {"message","errors"} with 400, 401, 403, 404, 409, 422 or 500.
// Request and response DTOs live next to their handlers.
package http
