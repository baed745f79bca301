// Package ecat is a host-side EtherCAT cyclic master for LinMot-class
// linear/rotary servo drives: a bit-exact PDO codec, a per-slave drive
// model, bus bring-up over a pluggable Adapter, a bounded-jitter cycle
// engine, and the shared-state bridge and command helpers a control
// thread uses to drive it.
package ecat
