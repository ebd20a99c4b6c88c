package aggregates

// MaxCompactionErrorLen exposes maxCompactionErrorLen to external tests.
const MaxCompactionErrorLen = maxCompactionErrorLen
