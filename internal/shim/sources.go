package shim

// These are intentionally minimal: enough surface for typical CommonJS
// packages written against Node's built-ins to load and run inside the
// goja-evaluated sandbox, not a faithful reimplementation of Node itself.

const eventsShimSrc = `
function EventEmitter() {
  this._events = {};
}
EventEmitter.prototype.on = function (event, listener) {
  (this._events[event] = this._events[event] || []).push(listener);
  return this;
};
EventEmitter.prototype.once = function (event, listener) {
  var self = this;
  function wrapped() {
    self.removeListener(event, wrapped);
    listener.apply(self, arguments);
  }
  return this.on(event, wrapped);
};
EventEmitter.prototype.removeListener = function (event, listener) {
  var list = this._events[event];
  if (!list) return this;
  var idx = list.indexOf(listener);
  if (idx !== -1) list.splice(idx, 1);
  return this;
};
EventEmitter.prototype.emit = function (event) {
  var list = this._events[event];
  if (!list) return false;
  var args = Array.prototype.slice.call(arguments, 1);
  list.slice().forEach(function (listener) { listener.apply(this, args); });
  return true;
};
module.exports = EventEmitter;
module.exports.EventEmitter = EventEmitter;
`

const streamShimSrc = `
var EventEmitter = require("events");
function inherits(ctor, parent) {
  ctor.super_ = parent;
  ctor.prototype = Object.create(parent.prototype, { constructor: { value: ctor, enumerable: false } });
}
function Stream() { EventEmitter.call(this); }
inherits(Stream, EventEmitter);
function Readable() { Stream.call(this); }
inherits(Readable, Stream);
Readable.prototype.pipe = function (dest) { this.on("data", function (chunk) { dest.write(chunk); }); return dest; };
function Writable() { Stream.call(this); }
inherits(Writable, Stream);
Writable.prototype.write = function () { return true; };
Writable.prototype.end = function () { this.emit("finish"); };
module.exports = Stream;
module.exports.Stream = Stream;
module.exports.Readable = Readable;
module.exports.Writable = Writable;
`

const utilShimSrc = `
module.exports = {
  inherits: function (ctor, parent) {
    ctor.super_ = parent;
    ctor.prototype = Object.create(parent.prototype, { constructor: { value: ctor, enumerable: false } });
  },
  format: function () {
    return Array.prototype.slice.call(arguments).map(String).join(" ");
  },
  inspect: function (v) { return JSON.stringify(v); },
  isArray: Array.isArray,
  isFunction: function (v) { return typeof v === "function"; },
  isObject: function (v) { return v !== null && typeof v === "object"; },
};
`

const processShimSrc = `
module.exports = {
  env: {},
  argv: ["node", "bundle.js"],
  platform: "browser",
  version: "v0.0.0",
  nextTick: function (fn) { setTimeout(fn, 0); },
  on: function () { return this; },
  cwd: function () { return "/"; },
  browser: true,
};
`

const bufferShimSrc = `
function Buffer(data) { return data; }
Buffer.from = function (data) { return data; };
Buffer.isBuffer = function () { return false; };
module.exports = { Buffer: Buffer };
`

const assertShimSrc = `
function assert(value, message) {
  if (!value) throw new Error(message || "assertion failed");
}
assert.ok = assert;
assert.equal = function (a, b, message) { if (a != b) throw new Error(message || (a + " != " + b)); };
assert.strictEqual = function (a, b, message) { if (a !== b) throw new Error(message || (a + " !== " + b)); };
module.exports = assert;
`

const pathShimSrc = `
function normalize(p) {
  var parts = p.split("/");
  var out = [];
  parts.forEach(function (part) {
    if (part === "" || part === ".") return;
    if (part === "..") { out.pop(); return; }
    out.push(part);
  });
  return (p.charAt(0) === "/" ? "/" : "") + out.join("/");
}
module.exports = {
  sep: "/",
  join: function () { return normalize(Array.prototype.slice.call(arguments).join("/")); },
  resolve: function () { return normalize("/" + Array.prototype.slice.call(arguments).join("/")); },
  dirname: function (p) { var i = p.lastIndexOf("/"); return i <= 0 ? "/" : p.slice(0, i); },
  basename: function (p) { return p.slice(p.lastIndexOf("/") + 1); },
  extname: function (p) { var b = p.slice(p.lastIndexOf("/") + 1); var i = b.lastIndexOf("."); return i <= 0 ? "" : b.slice(i); },
  normalize: normalize,
  isAbsolute: function (p) { return p.charAt(0) === "/"; },
};
`

const osShimSrc = `
module.exports = {
  platform: function () { return "browser"; },
  tmpdir: function () { return "/tmp"; },
  EOL: "\n",
  homedir: function () { return "/"; },
};
`

const urlShimSrc = `
module.exports = {
  parse: function (str) {
    var a = typeof document !== "undefined" ? document.createElement("a") : null;
    if (a) { a.href = str; return { protocol: a.protocol, host: a.host, pathname: a.pathname, search: a.search, hash: a.hash }; }
    return { href: str };
  },
  URL: (typeof URL !== "undefined") ? URL : function (s) { this.href = s; },
};
`

const querystringShimSrc = `
module.exports = {
  parse: function (str) {
    var out = {};
    (str || "").split("&").forEach(function (pair) {
      if (!pair) return;
      var idx = pair.indexOf("=");
      var k = idx === -1 ? pair : pair.slice(0, idx);
      var v = idx === -1 ? "" : pair.slice(idx + 1);
      out[decodeURIComponent(k)] = decodeURIComponent(v);
    });
    return out;
  },
  stringify: function (obj) {
    return Object.keys(obj || {}).map(function (k) {
      return encodeURIComponent(k) + "=" + encodeURIComponent(obj[k]);
    }).join("&");
  },
};
`

const stringDecoderShimSrc = `
function StringDecoder() {}
StringDecoder.prototype.write = function (buf) { return String(buf); };
StringDecoder.prototype.end = function () { return ""; };
module.exports = { StringDecoder: StringDecoder };
`

const timersShimSrc = `
module.exports = {
  setTimeout: setTimeout,
  clearTimeout: clearTimeout,
  setInterval: setInterval,
  clearInterval: clearInterval,
};
`
