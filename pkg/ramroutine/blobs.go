package ramroutine

// This build ships no vendor RAM routines: they are proprietary binaries
// not present anywhere in the source tree. The registry therefore starts
// empty, and FamilyA targets report NotFoundError until a downstream
// build calls Register with its own blobs (e.g. from an embed.FS loaded
// in its own init). FamilyB never consults this package.
