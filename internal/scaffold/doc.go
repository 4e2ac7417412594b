// Package scaffold creates new capability documents. It powers the
// "capreg new" command: the document is placed under the conventional root
// for its type, pre-filled with every field the type's schema requires, and
// validated right after it is written.
package scaffold
