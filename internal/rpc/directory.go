package rpc

// DirectoryGetUser resolves a user and the company it belongs to. Request
// {"user_id"}; response {"user_id", "company_id", "active"}.
const DirectoryGetUser = "/directory.v1.DirectoryService/GetUser"
